package sqlinline

// QRefundCredits credits a story's cost back at most once. The balance only
// moves when the refund row is new.
const QRefundCredits = `--sql 84882afa-0a16-4bd8-99b8-e89fe36acc1e
with refund as (
    insert into credit_refunds (story_id, user_id, amount, created_at)
    values ($2::uuid, $1::uuid, $3::int, now())
    on conflict (story_id) do nothing
    returning user_id, amount
)
update users u
set credit_balance = u.credit_balance + r.amount,
    updated_at = now()
from refund r
where u.id = r.user_id;
`

const QSelectStoryPricing = `--sql 733dc8eb-93dd-418d-a2cf-75fab18a362f
select length, credit_cost
from story_pricing;
`

const QSelectCreditBalance = `--sql 5cf7cc16-f415-46a8-b3d0-98e23b1ce3d5
select credit_balance
from users
where id = $1::uuid;
`

const QGrantCreditsByID = `--sql 0c9d4f7e-5b1a-4f0a-9a38-2b6d1e4c7f21
update users
set credit_balance = credit_balance + $2::int,
    updated_at = now()
where id = $1::uuid
returning id::text, email, credit_balance;
`

const QGrantCreditsByEmail = `--sql 9e2b7c14-3d6f-4a85-b1c0-7f4e8d2a6b93
update users
set credit_balance = credit_balance + $2::int,
    updated_at = now()
where lower(email) = lower($1::text)
returning id::text, email, credit_balance;
`
