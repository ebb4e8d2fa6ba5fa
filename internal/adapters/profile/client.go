package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

type playerDTO struct {
	PlayerID      string `json:"player_id"`
	MMR           int    `json:"mmr"`
	Tier          string `json:"tier"`
	CreatedAtUnix int64  `json:"created_at"`
	Online        bool   `json:"online"`
}

// GetPlayerProfile fetches the competitive snapshot the engine needs at
// enqueue time and during smurf scoring. Unknown players map to ErrNotFound.
func (c *Client) GetPlayerProfile(ctx context.Context, playerID string) (domain.PlayerProfile, error) {
	var dto playerDTO
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("/players/%s", playerID), nil, &dto); err != nil {
		return domain.PlayerProfile{}, err
	}
	age := time.Duration(0)
	if dto.CreatedAtUnix > 0 {
		age = time.Since(time.Unix(dto.CreatedAtUnix, 0))
	}
	return domain.PlayerProfile{
		PlayerID:   dto.PlayerID,
		MMR:        dto.MMR,
		Tier:       domain.Tier(dto.Tier),
		AccountAge: age,
		Online:     dto.Online,
	}, nil
}
