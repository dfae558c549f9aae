package summarize

import "fmt"

const summaryPrompt = `You are an expert at analyzing video transcripts. Based on the transcript below, write a DETAILED markdown summary.

Requirements:
- Start with a one-sentence title describing the video's topic
- List ALL major points and steps in the order they appear
- Explain each point, including notable caveats, tips and warnings
- Keep technical terms as-is
- Use markdown formatting: headings, bullet points, bold for key terms
- End with a "Key takeaways" section if there is anything worth emphasizing

Transcript:
---
%s
---`

func buildPrompt(transcript string) string {
	return fmt.Sprintf(summaryPrompt, transcript)
}
