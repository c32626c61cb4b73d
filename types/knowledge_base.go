package types

// KnowledgeBase is a backend routing target a question can be sent to.
// It only parameterizes the request; the decoder never reads it.
type KnowledgeBase struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	SourceURL   string `json:"source_url" yaml:"source_url"`
	Description string `json:"description" yaml:"description"`
}
