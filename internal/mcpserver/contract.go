package mcpserver

// StorageContract describes how memos are stored, for LLM consumers that
// read or write them through the tools.
const StorageContract = `# Memo Storage Contract

## Addressing

- Every memo is addressed by an opaque handle such as ` + "`memo:12`" + `.
- Handles come from ` + "`create_memo`" + ` and ` + "`list_memos`" + `. Never build one by hand.
- File paths are never exposed; do not guess them.

## Content

- Memos are plain UTF-8 text.
- The title is the first 10 characters of the content and is refreshed on every update.
- Content read back always ends with a newline: every line, the last one included,
  is terminated by "\n".

## Ordering

- ` + "`list_memos`" + ` returns the most recently modified memo first.

## Failures

- A memo whose file is missing or unreadable still answers ` + "`read_memo`" + ` with a
  placeholder text and an error flag. Run ` + "`audit_memos`" + ` to see files and records
  that have drifted apart.
`
