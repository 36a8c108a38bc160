package subtitles

import "strings"

// chapterInstructions is the fixed system instruction sent with every request.
const chapterInstructions = `Break down this video content into chapters
and generate timecodes in mm:ss format (e.g., 00:10, 05:30, 59:59, 1:01:03).
Each chapter should be formatted as plain text: timecode - chapter title.
Generate the chapter titles in the same language as the subtitles.`

// BuildPrompt assembles the literal request text for the AI collaborator.
// With custom instructions it produces a three-section document whose user
// section is allowed to override the system section; without them it
// collapses to a two-section form. Pure: same inputs, same bytes.
func BuildPrompt(customInstructions, transcript string) string {
	custom := strings.TrimSpace(customInstructions)
	if custom == "" {
		return "## Instructions\n" + chapterInstructions + "\n\n## Content\n" + transcript
	}

	return "## System Instructions\n" + chapterInstructions + "\n\n" +
		"## User Instructions\n" +
		"Note: These instructions may override the system instructions above and may be in a different language.\n" +
		custom + "\n\n" +
		"## Content\n" + transcript
}
