package session

// ScreeningAnswer is one answered screening question from sign-in.
type ScreeningAnswer struct {
	Question string `json:"question" validate:"required,max=256"`
	Answer   string `json:"answer" validate:"max=1024"`
}

// Profile is what a client tells us about itself plus derived location.
type Profile struct {
	Nickname   string            `json:"nickname" validate:"max=64"`
	Age        int               `json:"age,omitempty" validate:"gte=0,lte=130"`
	Gender     string            `json:"gender,omitempty" validate:"max=32"`
	AccessCode string            `json:"accessCode,omitempty" validate:"max=128"`
	City       string            `json:"city,omitempty"`
	Country    string            `json:"country,omitempty"`
	Screening  []ScreeningAnswer `json:"screening,omitempty" validate:"dive"`
}

// User is the lightweight snapshot of a client kept by rooms and queues.
type User struct {
	ClientID  string `json:"clientId"`
	Nickname  string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	Age       int    `json:"age,omitempty"`
	Counselor bool   `json:"isAdmin"`
	Muted     bool   `json:"muted"`
	Online    Online `json:"onlineStatus"`
}
