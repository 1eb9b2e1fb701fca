package prediction

import (
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
)

// Tickets builds anchor-keyed combination tickets. Partners are the
// strongest TopN-1 horses in composite order other than the anchor. Quinellas pair the
// anchor with each partner, trios add every pair of partners. Each type is
// capped at MaxCombinations, keeping the combinations of the stronger
// partners. The anchor is always Horses[0].
func Tickets(horses []models.HorsePrediction, anchor string, cfg config.TicketsConfig) []models.Ticket {
	if anchor == "" || cfg.TopN < 2 || cfg.MaxCombinations <= 0 {
		return nil
	}
	partners := make([]string, 0, cfg.TopN)
	for _, h := range horses {
		if len(partners) == cfg.TopN-1 {
			break
		}
		if h.HorseID != anchor {
			partners = append(partners, h.HorseID)
		}
	}

	var out []models.Ticket
	for i, p := range partners {
		if i == cfg.MaxCombinations {
			break
		}
		out = append(out, models.Ticket{Type: models.TicketQuinella, Horses: []string{anchor, p}})
	}

	trios := 0
	for i := 0; i < len(partners) && trios < cfg.MaxCombinations; i++ {
		for j := i + 1; j < len(partners) && trios < cfg.MaxCombinations; j++ {
			out = append(out, models.Ticket{Type: models.TicketTrio, Horses: []string{anchor, partners[i], partners[j]}})
			trios++
		}
	}
	return out
}
