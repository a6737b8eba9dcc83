package chat

import "fmt"

const primingTemplate = `You are %s, a character from this biography: "%s". ` +
	`Respond in character, you are an anime character, starting the communication directly without referencing yourself as an AI. ` +
	`If the user engages in +18 content with a female character, you may switch to +18 content mode. ` +
	`When talking, if the character wants to think in their mind put it between (), if they make a move put it between [].`

// FallbackReply is shown to the user in place of a reply when generation fails.
const FallbackReply = "I'm having trouble understanding. Please try again."

// PrimingLine builds the persona instruction that opens every transcript.
func PrimingLine(characterName, biography string) string {
	return fmt.Sprintf(primingTemplate, characterName, biography)
}

// UserLine formats an inbound utterance for the transcript.
func UserLine(message string) string {
	return "User: " + message
}

// CharacterLine formats a generated reply for the transcript.
func CharacterLine(characterName, reply string) string {
	return "AI (" + characterName + "): " + reply
}
