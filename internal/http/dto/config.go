package dto

type SetConfigRequest struct {
	Value string `json:"value" binding:"required"`
}

type SetConfigResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
