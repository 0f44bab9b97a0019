package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RecommenderModel struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ModelVersion string         `gorm:"column:model_version;uniqueIndex;not null" json:"model_version"`
	FeatureNames datatypes.JSON `gorm:"type:jsonb;column:feature_names;not null" json:"feature_names"`
	Weights      datatypes.JSON `gorm:"type:jsonb;column:weights;not null" json:"weights"`
	Meta         datatypes.JSON `gorm:"type:jsonb;column:meta" json:"meta,omitempty"`
	IsActive     bool           `gorm:"column:is_active;not null;default:false;index" json:"is_active"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RecommenderModel) TableName() string { return "recommender_models" }

func (m *RecommenderModel) FeatureNameList() []string {
	var names []string
	if len(m.FeatureNames) > 0 {
		_ = json.Unmarshal(m.FeatureNames, &names)
	}
	return names
}

func (m *RecommenderModel) WeightVector() []float64 {
	var weights []float64
	if len(m.Weights) > 0 {
		_ = json.Unmarshal(m.Weights, &weights)
	}
	return weights
}
