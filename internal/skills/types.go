// Package skills loads reusable instruction packs the engine can surface
// to the model. A skill is a directory containing a SKILL.md file with
// YAML frontmatter and a markdown body, plus any supporting files the
// body references by relative path.
package skills

// SkillFilename is the definition file each skill directory must contain.
const SkillFilename = "SKILL.md"

// FrontmatterDelimiter separates YAML frontmatter from the markdown body.
const FrontmatterDelimiter = "---"

// Skill is a discovered skill with its metadata and content.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `json:"name" yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `json:"description" yaml:"description"`

	// Content is the markdown body.
	Content string `json:"-"`

	// Path is the directory the skill was discovered in. Relative
	// references in the body resolve against this directory.
	Path string `json:"path"`
}
