package booking

// TranscriptLines renders turns as stored transcript messages: "You: ..." for
// the caller and "<assistant>: ..." for everything the assistant said or did.
func TranscriptLines(turns []Turn, assistantName string) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "You"
		if t.Role == RoleAssistant {
			speaker = assistantName
		}
		lines = append(lines, speaker+": "+t.Text)
	}
	return lines
}
