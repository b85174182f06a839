package parser

const systemPrompt = `You extract contact fields from business card text.
Return a strict JSON object with these keys, omitting ones you cannot find:
name, name_english, company, job_title, department, email, phone, mobile, fax, address, website, notes,
confidence (number from 0 to 1), field_confidence (object mapping field name to number from 0 to 1).
Phone numbers keep their original formatting. No markdown, no extra keys, no commentary.`

func buildCardPrompt(text string) string {
	const maxSnippet = 4000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return "Business card text:\n" + snippet
}
