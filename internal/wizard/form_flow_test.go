package wizard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joe/cloudpull/internal/config"
)

var _ = Describe("Form flow", func() {
	var model Model

	BeforeEach(func() {
		settings := config.DefaultSettings()
		settings.RemoteName = "gdrive"
		settings.RemoteRoot = "gdrive:photos"
		settings.LocalRoot = "/mnt/photos"
		model = NewModel(settings)
	})

	step := func(msg tea.Msg) {
		updated, _ := model.Update(msg)
		model = updated.(Model)
	}

	Describe("Focus movement", func() {
		It("starts on the first field", func() {
			Expect(model.focus).To(Equal(0))
		})

		It("advances on enter", func() {
			step(tea.KeyMsg{Type: tea.KeyEnter})

			Expect(model.focus).To(Equal(1))
		})

		It("moves back on shift+tab", func() {
			step(tea.KeyMsg{Type: tea.KeyEnter})
			step(tea.KeyMsg{Type: tea.KeyShiftTab})

			Expect(model.focus).To(Equal(0))
		})

		It("stays on the first field when moving back from it", func() {
			step(tea.KeyMsg{Type: tea.KeyShiftTab})

			Expect(model.focus).To(Equal(0))
		})
	})

	Describe("Field commits", func() {
		It("keeps a validation error on the focused field", func() {
			// Jump to the numeric max-age field and feed it garbage.
			for range 7 {
				step(tea.KeyMsg{Type: tea.KeyEnter})
			}

			step(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
			step(tea.KeyMsg{Type: tea.KeyEnter})

			Expect(model.errMsg).NotTo(BeEmpty())
			Expect(model.focus).To(Equal(len(fields) - 1))
		})

		It("clears the error once the field is corrected", func() {
			for range 7 {
				step(tea.KeyMsg{Type: tea.KeyEnter})
			}

			step(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
			step(tea.KeyMsg{Type: tea.KeyEnter})
			Expect(model.errMsg).NotTo(BeEmpty())

			step(tea.KeyMsg{Type: tea.KeyBackspace})
			step(tea.KeyMsg{Type: tea.KeyEnter})

			Expect(model.errMsg).To(BeEmpty())
			Expect(model.done).To(BeTrue())
		})
	})
})

func TestWizard(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Wizard Suite")
}
