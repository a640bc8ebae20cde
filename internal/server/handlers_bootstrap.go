package server

import (
	"github.com/gofiber/fiber/v2"
)

type modeCatalogEntry struct {
	Key                string `json:"key"`
	Label              string `json:"label"`
	Overview           string `json:"overview"`
	RequiresInProgress bool   `json:"requires_in_progress"`
}

// bootstrapHandler returns the mode catalogue available to a league,
// §4.B "Lookup" feeding the proposer's mode picker.
func (s *FiberServer) bootstrapHandler(c *fiber.Ctx) error {
	league := c.Params("league")

	var modes []modeCatalogEntry
	for _, mod := range s.deps.Registry.All() {
		if _, err := s.deps.Registry.Lookup(league, mod.Key()); err != nil {
			continue
		}
		modes = append(modes, modeCatalogEntry{
			Key:                mod.Key(),
			Label:              mod.Label(),
			Overview:           mod.Overview(),
			RequiresInProgress: mod.RequiresInProgress(),
		})
	}

	return c.JSON(fiber.Map{"league": league, "modes": modes})
}
