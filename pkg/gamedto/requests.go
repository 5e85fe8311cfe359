package gamedto

type CreateRequest struct {
	Player string `json:"player"`
	Mode   string `json:"mode,omitempty"`
}

type CreateResponse struct {
	GameID string `json:"game_id"`
}

type AutoMatchRequest struct {
	Player string `json:"player"`
}

type AutoMatchResponse struct {
	GameID  string `json:"game_id"`
	Matched bool   `json:"matched"`
}

type JoinRequest struct {
	Player string `json:"player"`
}

type JoinResponse struct {
	Joined    bool   `json:"joined,omitempty"`
	AlreadyIn bool   `json:"already_in,omitempty"`
	Message   string `json:"message,omitempty"`
}

type PlayRequest struct {
	Player string `json:"player"`
	Column int    `json:"column"`
}

type ResignRequest struct {
	Player string `json:"player"`
}

type RematchRequest struct {
	Player string `json:"player"`
}

type RematchResponse struct {
	GameID  string `json:"game_id,omitempty"`
	Waiting bool   `json:"waiting,omitempty"`
	Message string `json:"message,omitempty"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

type SetUsernameRequest struct {
	Player   string `json:"player"`
	Username string `json:"username"`
}
