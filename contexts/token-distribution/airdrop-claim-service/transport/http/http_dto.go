package httptransport

type ClaimAirdropRequest struct {
	Amount      string   `json:"amount"`
	MerkleProof []string `json:"merkle_proof"`
}

type ClaimResponse struct {
	SagaID  string `json:"saga_id"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Stage   string `json:"stage"`
}

type ClaimStatusResponse struct {
	Account string `json:"account"`
	Claimed bool   `json:"claimed"`
}

type SagaDTO struct {
	SagaID        string `json:"saga_id"`
	Account       string `json:"account"`
	Amount        string `json:"amount"`
	Root          string `json:"root"`
	Source        string `json:"source"`
	Stage         string `json:"stage"`
	FailureStage  string `json:"failure_stage,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type GetSagaResponse struct {
	Item SagaDTO `json:"item"`
}

type RootRequest struct {
	Root string `json:"root"`
}

type RootResponse struct {
	Root      string `json:"root"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type TransferAdministrationRequest struct {
	NewAdministrator string `json:"new_administrator"`
}

type AdministratorResponse struct {
	Administrator string `json:"administrator"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type AddAllocationsRequest struct {
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
}

type AddAllocationsResponse struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

type AllocationRequest struct {
	Amount string `json:"amount"`
}

type AllocationResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
