package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				workflow_id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL DEFAULT 1,
				status VARCHAR(50) NOT NULL CHECK (status IN ('DRAFT', 'PENDING_APPROVAL', 'APPROVED', 'REJECTED')),
				steps JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_tenant_id ON workflow_definitions(tenant_id);

			CREATE TABLE workflow_instances (
				instance_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('RUNNING', 'WAITING', 'COMPLETED', 'FAILED', 'CANCELLED')),
				trigger_data JSONB NOT NULL DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_instances_tenant_started ON workflow_instances(tenant_id, started_at DESC);

			CREATE TABLE workflow_state (
				instance_id VARCHAR(255) PRIMARY KEY REFERENCES workflow_instances(instance_id) ON DELETE CASCADE,
				current_step VARCHAR(255) NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE step_history (
				id UUID PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(instance_id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				step_name VARCHAR(255) NOT NULL DEFAULT '',
				step_type VARCHAR(50) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('STARTED', 'COMPLETED', 'FAILED')),
				input_data JSONB,
				output_data JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_step_history_instance_started ON step_history(instance_id, started_at);
		`,
		2: `
			-- Supports the user-task timeout sweep over WAITING instances
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status, started_at);
		`,
	}
}
