package formatter

type GeneralFormatter struct{}

func (f *GeneralFormatter) EntryTemplate() string {
	return `{{header .Category .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent}}
`
}

type MalformedCommentFormatter struct{}

func (f *MalformedCommentFormatter) EntryTemplate() string {
	return `{{header .Category .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{note .Padding "nothing in this file was rendered"}}
`
}

type RenderErrorFormatter struct{}

func (f *RenderErrorFormatter) EntryTemplate() string {
	return `{{header .Category .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{note .Padding "the fragment fails on its own; other fragments were rendered"}}
`
}
