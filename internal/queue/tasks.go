package queue

const (
	TypeSynthesize = "audiobook:synthesize"
)

type SynthesizePayload struct {
	JobID   string `json:"job_id"`
	OwnerID string `json:"owner_id"`
}
