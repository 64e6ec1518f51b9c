package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFileTypes(t *testing.T) {
	p := DeveloperPreset([]string{"/home/u"})
	now := time.Now()

	tests := []struct {
		name       string
		path       string
		wantAction Action
		wantReason Reason
	}{
		// Documents in the allow set
		{name: "docx", path: "/home/u/plans/q3.docx", wantAction: ActionIndex},
		{name: "pptx", path: "/home/u/deck.pptx", wantAction: ActionIndex},
		{name: "xlsx", path: "/home/u/budget.xlsx", wantAction: ActionIndex},
		{name: "pdf", path: "/home/u/paper.pdf", wantAction: ActionIndex},
		{name: "json", path: "/home/u/notes/export.json", wantAction: ActionIndex},
		{name: "markdown", path: "/home/u/README.md", wantAction: ActionIndex},
		{name: "png image", path: "/home/u/scan.png", wantAction: ActionIndex},
		{name: "legacy doc", path: "/home/u/old.doc", wantAction: ActionIndex},

		// Source code is filtered entirely, never "unsupported" telemetry
		{name: "go source", path: "/home/u/proj/main.go", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},
		{name: "typescript", path: "/home/u/proj/app.ts", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},
		{name: "python", path: "/home/u/proj/train.py", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},
		{name: "shell", path: "/home/u/bin/setup.sh", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},

		// Outside the allow set
		{name: "binary blob", path: "/home/u/random.bin", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},
		{name: "no extension", path: "/home/u/LICENSE", wantAction: ActionSkip, wantReason: ReasonUnsupportedFileType},

		// Sensitive files
		{name: "dotenv", path: "/home/u/proj/.env", wantAction: ActionSkip, wantReason: ReasonSensitivePath},
		{name: "pem key", path: "/home/u/certs/server.pem", wantAction: ActionSkip, wantReason: ReasonSensitivePath},
		{name: "credentials", path: "/home/u/aws_credentials.txt", wantAction: ActionSkip, wantReason: ReasonSensitivePath},

		// Excluded trees
		{name: "node_modules", path: "/home/u/proj/node_modules/pkg/readme.md", wantAction: ActionSkip, wantReason: ReasonExcludedPath},
		{name: "git objects", path: "/home/u/proj/.git/description.txt", wantAction: ActionSkip, wantReason: ReasonExcludedPath},
		{name: "build output", path: "/home/u/proj/build/report.pdf", wantAction: ActionSkip, wantReason: ReasonExcludedPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Evaluate(tt.path, 1024, now)
			assert.Equal(t, tt.wantAction, d.Action)
			if tt.wantReason != ReasonNone {
				assert.Equal(t, tt.wantReason, d.Reason)
			}
		})
	}
}

func TestEvaluateOversizedDeferred(t *testing.T) {
	p := DeveloperPreset(nil)
	p.MaxFileSize = 1024

	d := p.Evaluate("/home/u/huge.pdf", 4096, time.Now())
	assert.Equal(t, ActionDeferred, d.Action)
	assert.Equal(t, ReasonNone, d.Reason)

	d = p.Evaluate("/home/u/small.pdf", 512, time.Now())
	assert.Equal(t, ActionIndex, d.Action)
}

func TestEvaluateDirPrefixOnly(t *testing.T) {
	// Exclusion must be decidable on the directory prefix alone so the
	// crawler never descends into the subtree.
	p := DeveloperPreset(nil)

	tests := []struct {
		name string
		dir  string
		want Action
	}{
		{name: "node_modules root", dir: "/home/u/proj/node_modules", want: ActionSkip},
		{name: "nested node_modules", dir: "/home/u/a/b/node_modules", want: ActionSkip},
		{name: "git dir", dir: "/home/u/proj/.git", want: ActionSkip},
		{name: "python cache", dir: "/home/u/proj/__pycache__", want: ActionSkip},
		{name: "library caches", dir: "/home/u/Library/Caches/com.apple.dt", want: ActionSkip},
		{name: "ordinary dir", dir: "/home/u/Documents", want: ActionIndex},
		{name: "similarly named dir", dir: "/home/u/node_modules_backup", want: ActionIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.EvaluateDir(tt.dir)
			assert.Equal(t, tt.want, d.Action)
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	// Same inputs, same decision. No hidden state.
	p := DeveloperPreset([]string{"/home/u"})
	now := time.Now()
	first := p.Evaluate("/home/u/plan.docx", 100, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Evaluate("/home/u/plan.docx", 100, now))
	}
}

func TestDeveloperPresetDefaults(t *testing.T) {
	p := DeveloperPreset([]string{"/home/u/Documents", "/home/u/Desktop"})
	require.Len(t, p.AllowlistRoots, 2)
	assert.True(t, p.SkipUnknownMime)
	assert.Equal(t, int64(DefaultMaxFileSize), p.MaxFileSize)
	assert.Equal(t, DefaultMaxExtractionTime, p.ExtractionBudget())

	p.MaxExtractionTimePerFile = 150 * time.Millisecond
	assert.Equal(t, 150*time.Millisecond, p.ExtractionBudget())
}

func TestExtensionCaseInsensitive(t *testing.T) {
	p := DeveloperPreset(nil)
	d := p.Evaluate("/home/u/REPORT.DOCX", 10, time.Now())
	assert.Equal(t, ActionIndex, d.Action)
}
