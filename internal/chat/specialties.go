package chat

import "strings"

// Specialty is a shortcut that opens a consultation on one area of law.
type Specialty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var Specialties = []Specialty{
	{ID: "penal", Name: "Derecho Penal", Description: "Consultas sobre delitos y penas.", Icon: "⚖️"},
	{ID: "civil", Name: "Derecho Civil", Description: "Contratos, herencias y propiedad.", Icon: "🏠"},
	{ID: "familia", Name: "Derecho de Familia", Description: "Divorcios, pensiones y custodia.", Icon: "👪"},
	{ID: "laboral", Name: "Derecho Laboral", Description: "Despidos, contratos y seguridad social.", Icon: "💼"},
	{ID: "mercantil", Name: "Derecho Mercantil", Description: "Asesoría para empresas y comercio.", Icon: "🏢"},
	{ID: "constitucional", Name: "Derecho Constitucional", Description: "Garantías y derechos fundamentales.", Icon: "📜"},
	{ID: "administrativo", Name: "Derecho Administrativo", Description: "Trámites ante el sector público.", Icon: "🏛️"},
}

// FindSpecialty matches an id or a display name, ignoring case.
func FindSpecialty(key string) (Specialty, bool) {
	key = strings.TrimSpace(key)
	for _, s := range Specialties {
		if strings.EqualFold(s.ID, key) || strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return Specialty{}, false
}
