package mcpserver

const fence = "```"

// PageFormatContract describes the page file format LLM consumers should
// follow when reading or writing pages by hand.
const PageFormatContract = `# Quire Page Format Contract

A workspace is one flat directory of Markdown files. Every page file
follows this structure.

## Structure

` + fence + `markdown
---
title: "Page heading"    # REQUIRED, double quoted; the page is known by it
draft: true              # OPTIONAL, defaults to true
tags:                    # OPTIONAL; pages without tags get "Not tagged"
  - Tag
---
Body text.
` + fence + `

## Rules

1. **Front matter comes first.** The ` + "`---`" + ` fence is the first line of the file.
2. **The file name is derived from the title**: transliterated to ASCII,
   lowercased, spaces replaced by underscores, ` + "`.md`" + ` appended.
   "Crème Brûlée" is stored as ` + "`creme_brulee.md`" + `.
3. **Links to other pages** are written as
   ` + "`[Heading]({{< ref \"heading.md\" >}} \"Heading\")`" + `. Typing
   ` + "`[[Heading]]`" + ` in the editor produces the same link.
4. **Styling** kept by the editor: ` + "`#`" + `, ` + "`##`" + ` and ` + "`###`" + ` headings,
   ` + "`**bold**`" + `, ` + "`*emphasis*`" + `, inline code and fenced code blocks
   (written with four backticks). Other Markdown is kept verbatim.
5. **Encoding** is UTF-8 with a trailing newline.

## Example

` + fence + `markdown
---
title: "Weekly standup"
draft: false
tags:
  - meetings
---
# Weekly standup
Notes for the [Roadmap]({{< ref "roadmap.md" >}} "Roadmap") review.

**Action items** follow.
` + fence + `
`
