package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Stage prompts share a long preamble across turns of the tool
// loop, so the preamble is cached for the default five minutes.
func BuildCachedSystemBlocks(preamble, instructions string) []SystemBlock {
	blocks := []SystemBlock{{
		Text:         preamble,
		CacheControl: &CacheControl{TTL: "5m"},
	}}
	if instructions != "" {
		blocks = append(blocks, SystemBlock{Text: instructions})
	}
	return blocks
}
