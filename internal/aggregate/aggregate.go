// Package aggregate implements a multi-source merge structure with
// deterministic collision resolution and alias lookup. It is used in two
// places: inside the connection registry to merge tools from external
// servers, and in the prompt registry to merge prompts from external servers
// and local providers into one flat namespace.
package aggregate

import (
	"fmt"
	"sort"

	"agentctl/internal/capability"
)

// Entry is one aggregated item, stored under a canonical key.
type Entry[T any] struct {
	// Key is the canonical key the entry is stored under: the original name
	// while unique, or "source:name" after a cross-source collision.
	Key string
	// SourceName identifies the source that contributed the entry.
	SourceName string
	// OriginalName is the name as advertised by the source.
	OriginalName string
	// Info is the aggregated payload.
	Info T
}

// Aggregator merges entries tagged with a source name and an original name.
// Canonical keys are unique; aliases map alternate names (the bare original
// name, or secondary forms such as a slash-command spelling) onto canonical
// keys. Aggregator is not safe for concurrent writers: callers serialize
// inserts and removals, typically by rebuilding under their own lock.
type Aggregator[T any] struct {
	index   map[string]*Entry[T]
	aliases map[string]string
}

// New creates an empty aggregator.
func New[T any]() *Aggregator[T] {
	return &Aggregator[T]{
		index:   make(map[string]*Entry[T]),
		aliases: make(map[string]string),
	}
}

// QualifiedKey returns the canonical key a colliding entry is rekeyed to.
func QualifiedKey(sourceName, originalName string) string {
	return fmt.Sprintf("%s:%s", sourceName, originalName)
}

// Insert adds an item advertised by sourceName under its original name.
//
// While a name is unique across sources it is stored unqualified. When a
// second source advertises the same name, both entries move to (or are
// stored under) their qualified "source:name" keys, and the bare-name alias
// is repointed at the most recently inserted entry. With three or more
// colliding sources the same rule applies per insert, so the bare name
// always resolves to the last writer while every qualified key stays
// independently resolvable.
//
// Re-inserting a name from the same source replaces the stored entry in
// place.
func (a *Aggregator[T]) Insert(sourceName, originalName string, info T) {
	key := originalName

	existing, occupied := a.index[key]
	switch {
	case !occupied:
		// If this source collided here before, keep using its qualified key
		// so an entry never oscillates between spellings across rebuilds of
		// a single source.
		if prior, ok := a.index[QualifiedKey(sourceName, originalName)]; ok {
			prior.Info = info
			a.aliases[originalName] = prior.Key
			return
		}
		// The bare key can be vacant while qualified siblings from an
		// earlier collision still exist. A newcomer then joins the collision
		// set under its qualified key, keeping every colliding entry
		// qualified and the bare alias on the last writer.
		if aliasKey, ok := a.aliases[originalName]; ok {
			if _, live := a.index[aliasKey]; live {
				newKey := QualifiedKey(sourceName, originalName)
				a.index[newKey] = &Entry[T]{
					Key:          newKey,
					SourceName:   sourceName,
					OriginalName: originalName,
					Info:         info,
				}
				a.aliases[originalName] = newKey
				return
			}
		}
		a.index[key] = &Entry[T]{
			Key:          key,
			SourceName:   sourceName,
			OriginalName: originalName,
			Info:         info,
		}
		a.aliases[originalName] = key

	case existing.SourceName == sourceName:
		// Same source re-advertising the same name: update in place.
		existing.Info = info

	default:
		// Genuine cross-source collision: rekey the incumbent, store the
		// newcomer qualified, and point the bare alias at the newcomer.
		existingKey := QualifiedKey(existing.SourceName, existing.OriginalName)
		existing.Key = existingKey
		a.index[existingKey] = existing
		delete(a.index, key)

		newKey := QualifiedKey(sourceName, originalName)
		a.index[newKey] = &Entry[T]{
			Key:          newKey,
			SourceName:   sourceName,
			OriginalName: originalName,
			Info:         info,
		}
		a.aliases[originalName] = newKey
	}
}

// AddAlias registers an alternate name for the entry currently reachable as
// target (a canonical key or an existing alias). It never overwrites an
// alias that already points elsewhere, and reports whether the alias was
// registered.
func (a *Aggregator[T]) AddAlias(alias, target string) bool {
	key, ok := a.resolveKey(target)
	if !ok {
		return false
	}
	if current, exists := a.aliases[alias]; exists && current != key {
		// An alias left dangling by a rekey or removal may be repointed;
		// one resolving to a live entry may not.
		if _, live := a.index[current]; live {
			return false
		}
	}
	if _, exists := a.index[alias]; exists && alias != key {
		// A canonical key shadows any alias with the same spelling.
		return false
	}
	a.aliases[alias] = key
	return true
}

// Resolve looks a name up: first as a canonical key, then through the alias
// map. It returns ErrCapabilityNotFound for unknown names so callers cannot
// distinguish "never registered" from "source unavailable".
func (a *Aggregator[T]) Resolve(name string) (*Entry[T], error) {
	key, ok := a.resolveKey(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", capability.ErrCapabilityNotFound, name)
	}
	return a.index[key], nil
}

func (a *Aggregator[T]) resolveKey(name string) (string, bool) {
	if _, ok := a.index[name]; ok {
		return name, true
	}
	if key, ok := a.aliases[name]; ok {
		if _, live := a.index[key]; live {
			return key, true
		}
	}
	return "", false
}

// RemoveSource deletes every entry contributed by sourceName together with
// any alias resolving to it, and reports how many entries were removed.
// Entries from other sources are untouched.
func (a *Aggregator[T]) RemoveSource(sourceName string) int {
	removed := 0
	for key, entry := range a.index {
		if entry.SourceName != sourceName {
			continue
		}
		delete(a.index, key)
		removed++
	}
	// Drop stale aliases so every remaining alias resolves to a live key.
	for alias, key := range a.aliases {
		if _, live := a.index[key]; !live {
			delete(a.aliases, alias)
		}
	}
	return removed
}

// Entries returns all entries ordered by canonical key.
func (a *Aggregator[T]) Entries() []*Entry[T] {
	result := make([]*Entry[T], 0, len(a.index))
	for _, entry := range a.index {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Len returns the number of stored entries.
func (a *Aggregator[T]) Len() int {
	return len(a.index)
}

// Clear removes all entries and aliases.
func (a *Aggregator[T]) Clear() {
	a.index = make(map[string]*Entry[T])
	a.aliases = make(map[string]string)
}
