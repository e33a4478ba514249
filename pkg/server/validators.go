package server

type ResolveFilePayload struct {
	Path  string `json:"path" validate:"required"`
	Kind  string `json:"kind" default:"isbn" validate:"oneof=isbn title"`
	Value string `json:"value" validate:"required"`
}
