package db

// SchemaSQL defines the run ledger tables.
const SchemaSQL = `
    -- ==========================================================================
    -- BATCH RUN TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS batch_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS input_path ON batch_run TYPE string;
    DEFINE FIELD IF NOT EXISTS output_path ON batch_run TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON batch_run TYPE string
        ASSERT $value IN ["pending", "running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS dry_run ON batch_run TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS total ON batch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS progress ON batch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS succeeded ON batch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS failed ON batch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON batch_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON batch_run TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON batch_run TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS batch_run_started ON batch_run FIELDS started_at;
    DEFINE INDEX IF NOT EXISTS batch_run_status ON batch_run FIELDS status;

    -- ==========================================================================
    -- ROW OUTCOME TABLE (one record per audited row)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS row_outcome SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run_id ON row_outcome TYPE string;
    DEFINE FIELD IF NOT EXISTS line ON row_outcome TYPE int;
    DEFINE FIELD IF NOT EXISTS outcome ON row_outcome TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON row_outcome TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS row_outcome_run ON row_outcome FIELDS run_id, line;
`
