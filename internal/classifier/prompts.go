package classifier

import _ "embed"

//go:embed prompts/stage1_classifier.md
var stage1System string

//go:embed prompts/stage2_analyzer.md
var stage2System string
