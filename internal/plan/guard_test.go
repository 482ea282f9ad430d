package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckImpossibilityFiresOnKnownPattern(t *testing.T) {
	catalog := newCatalog(t, "message.compose", "message.send")

	name, discard := CheckImpossibility(
		"Cannot complete: message.send does not support composing content",
		catalog, DefaultGuardPatterns())

	assert.True(t, discard)
	assert.Equal(t, "compose-then-send", name)
}

func TestCheckImpossibilityRequiresCatalogCoverage(t *testing.T) {
	// message.compose is genuinely missing: the verdict stands.
	catalog := newCatalog(t, "message.send")

	_, discard := CheckImpossibility(
		"Cannot complete: message.send does not support composing content",
		catalog, DefaultGuardPatterns())

	assert.False(t, discard)
}

func TestCheckImpossibilityRequiresMention(t *testing.T) {
	catalog := newCatalog(t, "message.compose", "message.send")

	_, discard := CheckImpossibility(
		"the request is ambiguous and cannot be planned",
		catalog, DefaultGuardPatterns())

	assert.False(t, discard)
}

func TestCheckImpossibilityIsCaseInsensitive(t *testing.T) {
	catalog := newCatalog(t, "message.compose", "message.send")

	_, discard := CheckImpossibility(
		"MESSAGE.COMPOSE is unavailable",
		catalog, DefaultGuardPatterns())

	assert.True(t, discard)
}

func TestCheckImpossibilityEmptyPatternList(t *testing.T) {
	catalog := newCatalog(t, "message.compose", "message.send")

	_, discard := CheckImpossibility("message.send missing", catalog, nil)

	assert.False(t, discard)
}
