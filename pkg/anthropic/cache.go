package anthropic

// BuildCachedSystemBlocks returns text as a single system block carrying a
// cache breakpoint, so repeated calls sharing it read from the prompt cache.
// ttl defaults to "5m".
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if ttl == "" {
		ttl = "5m"
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
