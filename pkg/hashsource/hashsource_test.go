//nolint:varnamelen // Test files use idiomatic short variable names (t, tt, etc.)
package hashsource_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/cloudpull/pkg/hashsource"
)

// md5 of "content" is 9a0364b9e99bb480dd25e1f0284c8555.
const contentHash = "9a0364b9e99bb480dd25e1f0284c8555"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))

		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}

		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	return root
}

func TestLocalSourceHashesEveryFile(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	root := writeTree(t, map[string]string{
		"a.jpg":        "content",
		"nested/b.jpg": "content",
	})

	source, err := hashsource.New(root)
	g.Expect(err).ShouldNot(HaveOccurred())

	defer func() {
		_ = source.Close()
	}()

	records, err := source.Hashes(nil)
	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(records).To(HaveLen(2))

	paths := make([]string, 0, len(records))

	for _, record := range records {
		g.Expect(record.Hash).To(Equal(contentHash))
		g.Expect(record.Hash).To(HaveLen(32))
		g.Expect(record.Hash).To(Equal(strings.ToLower(record.Hash)))
		paths = append(paths, record.Path)
	}

	g.Expect(paths).To(ConsistOf("a.jpg", "nested/b.jpg"))
}

func TestLocalSourcePathsUseForwardSlashes(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	root := writeTree(t, map[string]string{"deep/er/c.txt": "x"})

	source, err := hashsource.New(root)
	g.Expect(err).ShouldNot(HaveOccurred())

	records, err := source.Hashes(nil)
	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(records).To(HaveLen(1))
	g.Expect(records[0].Path).To(Equal("deep/er/c.txt"))
}

func TestLocalSourceAppliesFilter(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	root := writeTree(t, map[string]string{
		"keep/a.jpg": "content",
		"skip/b.jpg": "content",
	})

	source, err := hashsource.New(root)
	g.Expect(err).ShouldNot(HaveOccurred())

	records, err := source.Hashes(func(relPath string) bool {
		return strings.HasPrefix(relPath, "keep/")
	})
	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(records).To(HaveLen(1))
	g.Expect(records[0].Path).To(Equal("keep/a.jpg"))
}

func TestLocalSourceEmptyTree(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	source, err := hashsource.New(t.TempDir())
	g.Expect(err).ShouldNot(HaveOccurred())

	records, err := source.Hashes(nil)
	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(records).To(BeEmpty())
}
