package dto

type ProvisionRequest struct {
	ProjectName string `json:"project_name" binding:"required"`
	Description string `json:"description"`

	// Optional stack overrides; anything left empty falls back to the
	// recommendation derived from the description.
	Framework string `json:"framework"`
	Database  string `json:"database"`
	Hosting   string `json:"hosting"`

	// Credentials supplies provider tokens inline, keyed by provider
	// name. Inline tokens win over previously connected accounts.
	Credentials map[string]ProvisionCredential `json:"credentials"`
}

type ProvisionCredential struct {
	Token string            `json:"token"`
	Extra map[string]string `json:"extra"`
}
