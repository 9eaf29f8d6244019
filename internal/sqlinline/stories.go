package sqlinline

const QSelectStory = `--sql 3f4245a9-9998-4cd7-8e66-9b821a6fd8b0
select id::text, user_id::text, child_id::text, status, theme, mood, length,
       coalesce(lesson, ''), credit_cost,
       coalesce(title, ''), coalesce(summary, ''), coalesce(body, ''),
       coalesce(setting, ''), coalesce(conflict, ''), coalesce(tone, ''),
       coalesce(model, ''), coalesce(preview_url, ''), coalesce(error_message, ''),
       ready_at, created_at, updated_at
from stories
where id = $1::uuid;
`

const QSelectChildProfile = `--sql 5b1197c4-baec-4990-83e9-2df8e4095f8a
select id::text, user_id::text, name, age
from child_profiles
where id = $1::uuid;
`

const QSelectRecentFingerprints = `--sql ef5e81b9-746c-44b8-ab2f-d566a310d097
select coalesce(setting, ''), coalesce(conflict, ''), coalesce(tone, '')
from stories
where child_id = $1::uuid
  and status = 'ready'
order by ready_at desc nulls last, created_at desc
limit $2::int;
`

// QUpdateStoryStatus only moves forward along the pipeline and never leaves a
// terminal state. Every applied change is appended to the status history.
const QUpdateStoryStatus = `--sql f7a7b480-35e2-4d0a-8409-cfbd2c7c894c
with pipeline as (
    select array['queued', 'generating_text', 'extracting_meta', 'generating_cover', 'uploading_cover', 'ready']::text[] as stages
),
updated as (
    update stories s
    set status = $2::text,
        error_message = case when $2::text = 'failed' then nullif($3::text, '') else s.error_message end,
        updated_at = now()
    from pipeline p
    where s.id = $1::uuid
      and s.status not in ('ready', 'failed')
      and (
          $2::text = 'failed'
          or array_position(p.stages, $2::text) > array_position(p.stages, s.status)
      )
    returning s.id, s.status, s.error_message
)
insert into story_status_events (story_id, status, error_message, created_at)
select id, status, error_message, now()
from updated
returning story_id::text;
`

const QUpdateStoryContent = `--sql f9e7401e-b093-4f10-9446-f7b4b24dd368
update stories
set title = $2::text,
    summary = $3::text,
    body = $4::text,
    setting = nullif($5::text, ''),
    conflict = nullif($6::text, ''),
    tone = nullif($7::text, ''),
    model = $8::text,
    updated_at = now()
where id = $1::uuid;
`

const QMarkStoryReady = `--sql d0b6383b-8111-4649-a6e1-214f1250696c
with updated as (
    update stories
    set status = 'ready',
        preview_url = $2::text,
        ready_at = $3::timestamptz,
        updated_at = now()
    where id = $1::uuid
      and status = 'uploading_cover'
    returning id, status
)
insert into story_status_events (story_id, status, error_message, created_at)
select id, status, null, now()
from updated
returning story_id::text;
`

const QSelectStatusEvents = `--sql 5a002707-a08b-48c6-97ed-f640b42cc330
select story_id::text, status, coalesce(error_message, ''), created_at
from story_status_events
where story_id = $1::uuid
order by id asc;
`

// QInsertStoryWithDebit debits the user and creates the queued story in one
// statement. No row comes back when the balance is too low or the child
// belongs to someone else.
const QInsertStoryWithDebit = `--sql 57308a11-6ea8-4728-8f84-ebe3f0590e36
with debit as (
    update users
    set credit_balance = credit_balance - $7::int,
        updated_at = now()
    where id = $2::uuid
      and credit_balance >= $7::int
      and exists (
          select 1 from child_profiles c
          where c.id = $3::uuid and c.user_id = $2::uuid
      )
    returning id
),
inserted as (
    insert into stories (id, user_id, child_id, status, theme, mood, length, lesson, credit_cost, created_at, updated_at)
    select $1::uuid, d.id, $3::uuid, 'queued', $4::text, $5::text, $6::text, nullif($8::text, ''), $7::int, now(), now()
    from debit d
    returning id, status
)
insert into story_status_events (story_id, status, error_message, created_at)
select id, status, null, now()
from inserted
returning story_id::text;
`
