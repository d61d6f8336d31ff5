package mcpserver

// APIContract documents the bridge's HTTP wire contract for MCP clients
// that also talk to the HTTP listener.
const APIContract = `# Apro Bridge HTTP Contract

The bridge listens on plain HTTP (default ` + "`" + `localhost:8767` + "`" + `). Every request that
touches the collection runs on a single main-thread executor, one at a time, in arrival order.
Responses are JSON. Success bodies are ` + "`" + `{"result": ..., "error": null}` + "`" + `; error bodies are
` + "`" + `{"error": "<message>", "result": null}` + "`" + `.

## Routes

| Method | Path / body | Result | Failure status |
|---|---|---|---|
| OPTIONS | any | 200, CORS headers only | - |
| GET | ` + "`" + `/` + "`" + ` (or any path) | ` + "`" + `{decks: [...], noteTypes: [...]}` + "`" + ` sorted | 500 |
| GET | ` + "`" + `/model-fields?modelName=X` + "`" + ` | ` + "`" + `{name, fields, isCloze, clozeFieldName, Front, Back, CSS}` + "`" + ` | 500 |
| POST | ` + "`" + `{deck, noteType, fields, tags?}` + "`" + ` | new note id | 400 |
| POST | ` + "`" + `{action: "notesInfo", params: {notes: [ids]}}` + "`" + ` | one entry per id, ` + "`" + `null` + "`" + ` if missing | 400 |
| POST | ` + "`" + `{action: "addTags" or "removeTags", params: {notes: [ids], tags: "a b"}}` + "`" + ` | null | 400 |
| POST | ` + "`" + `{action: "updateNoteTags", params: {note: {id, tags: "a b"}}}` + "`" + ` | null | 400 |
| POST | ` + "`" + `{action: "findNotes", params: {query: "..."}}` + "`" + ` | matching ids | 400 |
| PATCH | ` + "`" + `{note: {id, fields?}}` + "`" + ` or ` + "`" + `{params: {note: {...}}}` + "`" + ` | null | 404 if the note is missing (body adds ` + "`" + `"status": "not found"` + "`" + `), else 400 |
| DELETE | ` + "`" + `{noteId}` + "`" + ` | ` + "`" + `{"status": "success"}` + "`" + ` | 400 |
| PUT | ` + "`" + `{mediaData: <base64>, extension?}` + "`" + ` | stored file name | 500 |

Operational routes live under ` + "`" + `/_bridge/` + "`" + `: ` + "`" + `health` + "`" + `, ` + "`" + `metrics` + "`" + ` (prometheus),
` + "`" + `events` + "`" + ` (server-sent events), and ` + "`" + `media/{filename}` + "`" + `.

## Search syntax (findNotes)

Terms are separated by spaces and must all match. Quote phrases with double quotes. Prefix a term
with ` + "`" + `-` + "`" + ` to negate it. ` + "`" + `*` + "`" + ` is a wildcard.

- ` + "`" + `deck:NAME` + "`" + ` notes with a card in the deck or its subdecks
- ` + "`" + `tag:NAME` + "`" + ` notes carrying the tag
- ` + "`" + `note:TYPE` + "`" + ` notes of the note type
- ` + "`" + `nid:1,2,3` + "`" + ` notes by id
- bare text matches any field, case-insensitively

## Media

Media names are ` + "`" + `apro-bridge-<sha1 of bytes>.<extension>` + "`" + `. Uploading the same bytes
twice yields the same name. The returned name is authoritative: the collection may rename a file
whose name is taken by different content.
`
