package sqlinline

const QInsertUsageTransaction = `--sql d68dbf10-8a38-4dbb-a4c6-9dc9f7d5d076
insert into usage_transactions (
    id, story_id, operation_type, model,
    input_tokens, output_tokens, total_tokens, prompt_tokens, completion_tokens,
    request_id, response_id, created_at
)
values (
    gen_random_uuid(), $1::uuid, $2::text, $3::text,
    $4::int, $5::int, $6::int, $7::int, $8::int,
    nullif($9::text, ''), nullif($10::text, ''), now()
);
`
