package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	org TEXT NOT NULL,
	config TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	org TEXT NOT NULL,
	slug TEXT NOT NULL,
	role TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org, slug)
);

CREATE TABLE IF NOT EXISTS outputs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	writer_agent_slug TEXT NOT NULL,
	editor_agent_slug TEXT NOT NULL DEFAULT '',
	writer_provider TEXT NOT NULL DEFAULT '',
	writer_model TEXT NOT NULL DEFAULT '',
	editor_provider TEXT NOT NULL DEFAULT '',
	editor_model TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	edit_cycle INTEGER NOT NULL DEFAULT 0 CHECK (edit_cycle >= 0),
	status TEXT NOT NULL DEFAULT 'pending_write',
	editor_feedback TEXT,
	editor_approved INTEGER,
	initial_avg_score REAL,
	initial_rank INTEGER,
	is_finalist INTEGER NOT NULL DEFAULT 0,
	final_total_score INTEGER,
	final_rank INTEGER,
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outputs_task_status ON outputs(task_id, status);

CREATE TABLE IF NOT EXISTS output_versions (
	id TEXT PRIMARY KEY,
	output_id TEXT NOT NULL REFERENCES outputs(id) ON DELETE CASCADE,
	version_number INTEGER NOT NULL CHECK (version_number >= 1),
	content TEXT NOT NULL,
	action_type TEXT NOT NULL,
	editor_feedback TEXT,
	created_at INTEGER NOT NULL,
	UNIQUE (output_id, version_number)
);

CREATE TABLE IF NOT EXISTS execution_steps (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	step_type TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	agent_slug TEXT NOT NULL,
	depends_on TEXT NOT NULL DEFAULT '[]',
	input_output_id TEXT REFERENCES outputs(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (task_id, sequence)
);

CREATE TABLE IF NOT EXISTS evaluations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	output_id TEXT NOT NULL REFERENCES outputs(id) ON DELETE CASCADE,
	evaluator_agent_slug TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	stage TEXT NOT NULL,
	score INTEGER CHECK (score BETWEEN 1 AND 10),
	rank INTEGER CHECK (rank BETWEEN 1 AND 5),
	weighted_score INTEGER CHECK (weighted_score IN (100, 60, 30, 10, 5, 0)),
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (output_id, evaluator_agent_slug, stage)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_task_stage ON evaluations(task_id, stage);
`
