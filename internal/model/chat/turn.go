package chat

// TurnRequest is the inbound contract of one conversational turn.
type TurnRequest struct {
	ChatID        string `json:"chatId"`
	CharacterName string `json:"characterName"`
	Biography     string `json:"biography"`
	UserMessage   string `json:"userMessage"`
}

// TurnResult carries the generated reply. Reply is raw text; thought and
// action markup is left embedded for the client formatter.
type TurnResult struct {
	Reply            string     `json:"response"`
	ChatID           string     `json:"chatId"`
	Transition       Transition `json:"transition"`
	TranscriptLength int        `json:"transcriptLength"`
}
