package sqlinline

const QEnqueueStory = `--sql f13c77ba-1b28-48b0-8e60-307b125b287c
with inserted as (
    insert into story_queue (message_id, story_id, payload, status, attempts, enqueued_at)
    values ($1::text, $2::text, $3::jsonb, 'ready', 0, now())
    returning id
)
select pg_notify('story_jobs', id::text)
from inserted;
`

// QClaimQueueMessage leases the oldest ready message. An expired lease makes
// the message claimable again.
const QClaimQueueMessage = `--sql 11118496-acb1-4b07-ab99-2b93a817ea81
with next_message as (
    select id
    from story_queue
    where status = 'ready'
      and (locked_until is null or locked_until < now())
    order by id asc
    for update skip locked
    limit 1
)
update story_queue q
set locked_until = now() + make_interval(secs => $1::double precision),
    lease_token = gen_random_uuid(),
    attempts = q.attempts + 1
from next_message n
where q.id = n.id
returning q.id, q.message_id, q.payload, q.lease_token::text;
`

const QAckQueueMessage = `--sql 6c404ad5-83b3-449a-ac7b-1d2d3e3fc4a3
delete from story_queue
where id = $1::bigint
  and lease_token = $2::uuid;
`

const QRejectQueueMessage = `--sql ddc31660-9b94-41b1-bc36-e904c613c943
update story_queue
set status = 'dead',
    dead_at = now(),
    locked_until = null
where id = $1::bigint
  and lease_token = $2::uuid;
`
