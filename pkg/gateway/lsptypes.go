package gateway

// This file defines the minimal slice of the LSP wire types the gateway
// actually dispatches on (spec.md §4.6); it is not a general-purpose LSP
// types library, only what initialize/didOpen/didChange/... need.

// Position is a zero-based line/character position in a text document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a start/end pair of Positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier adds the document's edit version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

// TextDocumentItem is the full payload of a newly opened document.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams locates a position within a document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// WorkspaceFolder names one root folder of the client's workspace.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InitializeParams is the client's opening handshake payload.
type InitializeParams struct {
	RootURI          string            `json:"rootUri"`
	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders"`
}

// ServerInfo names this gateway to the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises what the gateway supports. It mirrors the
// surface gateway.rs declares (spec.md §4.6): incremental sync, completion,
// hover, definition, references, document/workspace symbols, code actions,
// formatting, rename-with-prepare and pull diagnostics.
type ServerCapabilities struct {
	TextDocumentSync       textDocumentSyncOptions `json:"textDocumentSync"`
	CompletionProvider     completionOptions       `json:"completionProvider"`
	HoverProvider          bool                    `json:"hoverProvider"`
	DefinitionProvider     bool                    `json:"definitionProvider"`
	ReferencesProvider     bool                    `json:"referencesProvider"`
	DocumentSymbolProvider bool                    `json:"documentSymbolProvider"`
	WorkspaceSymbolProvider bool                   `json:"workspaceSymbolProvider"`
	CodeActionProvider     bool                    `json:"codeActionProvider"`
	DocumentFormattingProvider bool                `json:"documentFormattingProvider"`
	RenameProvider         renameOptions           `json:"renameProvider"`
	DiagnosticProvider     diagnosticOptions       `json:"diagnosticProvider"`
}

type textDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"` // 2 == Incremental, matching the LSP spec's TextDocumentSyncKind
	Save      struct {
		IncludeText bool `json:"includeText"`
	} `json:"save"`
}

type completionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
	ResolveProvider   bool     `json:"resolveProvider"`
}

type renameOptions struct {
	PrepareProvider bool `json:"prepareProvider"`
}

type diagnosticOptions struct {
	InterFileDependencies bool `json:"interFileDependencies"`
	WorkspaceDiagnostics  bool `json:"workspaceDiagnostics"`
}

// InitializeResult is the handshake reply.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

// DidOpenTextDocumentParams carries a newly opened document's full text.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// TextDocumentContentChangeEvent is one incremental (or full) edit.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidChangeTextDocumentParams carries an edited document's new version and changes.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidCloseTextDocumentParams names the document that was closed.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams carries a saved document's on-disk text, if the
// client opted into includeText (spec.md §4.6).
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

// CompletionParams locates a completion request.
type CompletionParams struct {
	TextDocumentPositionParams
}

// ReferenceParams locates a find-references request.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
}

// DocumentSymbolParams names the document to list symbols for.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentFormattingParams names the document to format.
type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// RenameParams locates a symbol-rename request.
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// CodeActionParams locates a code-action request over a range.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
}

// WorkspaceSymbolParams is the query payload for workspace/symbol, a
// ScatterGather request (spec.md §4.5): it names no document, so it has to
// be resolved against every group/analyzer that might hold a match.
type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// WorkspaceDiagnosticParams is the workspace/diagnostic request payload
// (LSP 3.17 pull diagnostics); the gateway doesn't track previousResultIds,
// so every call is treated as a full re-scan.
type WorkspaceDiagnosticParams struct {
	PreviousResultIDs []struct {
		URI   string `json:"uri"`
		Value string `json:"value"`
	} `json:"previousResultIds"`
}
