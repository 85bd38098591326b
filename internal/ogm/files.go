package ogm

import (
	"context"
	"fmt"
	"sort"

	"github.com/armchr/graphogm/internal/storage"

	"go.uber.org/zap"
)

// storeUploads saves every storage.Upload in values and replaces it with the
// public URL. On failure the files saved so far are removed again.
func (m *Mapper) storeUploads(ctx context.Context, owner string, values map[string]any) ([]string, error) {
	var names []string
	for name, value := range values {
		if _, ok := value.(storage.Upload); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	if m.files == nil {
		return nil, fmt.Errorf("%w: %s: no file storage configured for %v", ErrProperty, owner, names)
	}
	sort.Strings(names)

	var urls []string
	for _, name := range names {
		url, err := m.files.Save(ctx, values[name].(storage.Upload))
		if err != nil {
			m.removeFiles(ctx, urls)
			return nil, fmt.Errorf("%s.%s: %w", owner, name, err)
		}
		values[name] = url
		urls = append(urls, url)
	}
	return urls, nil
}

// removeFiles deletes stored files and purges them from the CDN. Failures
// are logged; the graph write they belong to has already been decided.
func (m *Mapper) removeFiles(ctx context.Context, urls []string) {
	if m.files == nil || len(urls) == 0 {
		return
	}

	var paths []string
	for _, url := range urls {
		path, err := m.files.Delete(ctx, url)
		if err != nil {
			m.logger.Warn("Failed to remove stored file", zap.String("url", url), zap.Error(err))
			continue
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}
	if err := m.purger.Purge(ctx, paths); err != nil {
		m.logger.Warn("Failed to purge removed files", zap.Strings("paths", paths), zap.Error(err))
	}
}

// storedFiles lists the URLs held by the externally stored properties.
func storedFiles(props []Property, values map[string]any) []string {
	var urls []string
	for _, p := range props {
		if !p.ExternallyStored {
			continue
		}
		if url, ok := values[p.Name].(string); ok && url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

func hasStoredProperties(props []Property) bool {
	for _, p := range props {
		if p.ExternallyStored {
			return true
		}
	}
	return false
}

// pendingUpdate is a validated single property write.
type pendingUpdate struct {
	value    any
	previous string
	uploaded []string
}

// prepareUpdate normalizes value for property p, storing an upload when p is
// externally stored. current holds the instance's properties.
func (m *Mapper) prepareUpdate(ctx context.Context, where string, p Property, current map[string]any, value any) (pendingUpdate, error) {
	var u pendingUpdate
	value = call(value)
	if p.ExternallyStored {
		upload, ok, err := asUpload(value)
		if err != nil {
			return u, fmt.Errorf("%w: %s.%s: %v", ErrProperty, where, p.Name, err)
		}
		u.previous, _ = current[p.Name].(string)
		value = nil
		if ok {
			values := map[string]any{p.Name: upload}
			if u.uploaded, err = m.storeUploads(ctx, where, values); err != nil {
				return u, err
			}
			value = values[p.Name]
		}
	}
	if value == nil && p.Required {
		return u, fmt.Errorf("%w: %s.%s cannot be cleared", ErrRequiredConstraint, where, p.Name)
	}
	if value != nil {
		normalized, err := normalizeValue(where, p.Name, value)
		if err != nil {
			m.removeFiles(ctx, u.uploaded)
			return u, err
		}
		value = normalized
	}
	u.value = value
	return u, nil
}

// apply records a written update on current and drops the replaced file.
func (m *Mapper) apply(ctx context.Context, current map[string]any, name string, u pendingUpdate) {
	if u.value == nil {
		delete(current, name)
	} else {
		current[name] = u.value
	}
	if u.previous != "" && u.previous != u.value {
		m.removeFiles(ctx, []string{u.previous})
	}
}
