package desktop

import (
	"fmt"
	"strings"

	"iurynex-aura/internal/app"
	"iurynex-aura/internal/audio/capture"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/session"

	"github.com/charmbracelet/lipgloss"
)

type Styles struct {
	Title lipgloss.Style
	User  lipgloss.Style
	Model lipgloss.Style
	Time  lipgloss.Style
	Help  lipgloss.Style
	Error lipgloss.Style
	Live  lipgloss.Style
}

func NewStyles() Styles {
	blue := lipgloss.Color("#2563eb")
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(blue),
		User:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(blue).Padding(0, 1),
		Model: lipgloss.NewStyle().Bold(true).Foreground(blue),
		Time:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		Help:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")),
		Live:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#dc2626")),
	}
}

func (s Styles) message(m chat.Message) string {
	who := s.Model.Render("Aura")
	if m.Role == chat.RoleUser {
		who = s.User.Render("Tú")
	}
	return fmt.Sprintf("%s %s\n%s\n", who, s.Time.Render(m.Timestamp.Format("15:04")), m.Content)
}

func (s Styles) specialties() string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Especialidades") + "\n")
	for i, sp := range chat.Specialties {
		fmt.Fprintf(&b, "  %d. %s %s %s\n", i+1, sp.Icon, sp.Name, s.Help.Render(sp.Description))
	}
	return b.String()
}

func (s Styles) live(snap session.Snapshot) string {
	switch {
	case snap.State == session.StateActive:
		return s.Live.Render("● EN VIVO") + " " + string(snap.Status)
	case snap.State == session.StateConnecting:
		return s.Help.Render("Conectando...")
	case snap.Error != "":
		return s.Error.Render("Voz desconectada: " + snap.Error)
	}
	return s.Help.Render("Voz inactiva")
}

func (s Styles) state(st app.State, messages int, audio capture.Stats) string {
	sidebar := "cerrada"
	if st.SidebarOpen {
		sidebar = "abierta"
	}
	out := fmt.Sprintf("Vista: %s · Barra lateral: %s · Mensajes: %d\n%s\n", st.View, sidebar, messages, s.live(st.Live))
	if st.Live.State == session.StateActive {
		out += s.Help.Render(fmt.Sprintf("Audio enviado: %d bloques · descartados: %d · fallidos: %d", audio.Sent, audio.Dropped, audio.Failed)) + "\n"
	}
	return out
}

const helpText = `Escribe tu consulta y pulsa Enter, o usa un comando:
  /live          iniciar conversación por voz
  /stop          finalizar conversación por voz
  /chat          volver al chat
  /esp [n|id]    especialidades (sin argumento, lista)
  /reset         reiniciar el chat
  /agendar       abrir la página para agendar una cita
  /sidebar       mostrar u ocultar la barra lateral
  /historial     mostrar toda la conversación
  /estado        estado actual
  /ayuda         esta ayuda
  /salir         salir`
