package request

import "github.com/edvin/outreach/internal/model"

type CreateMappingTemplate struct {
	Name        string                  `json:"name" validate:"required,max=200"`
	Description string                  `json:"description" validate:"max=2000"`
	Mappings    []model.VariableMapping `json:"mappings" validate:"required,min=1,dive"`
	IsFavorite  bool                    `json:"is_favorite"`
}

type SetFavorite struct {
	IsFavorite *bool `json:"is_favorite" validate:"required"`
}
