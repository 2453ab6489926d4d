// Package di provides dependency injection for repository implementations.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/modules/prediction"
	"github.com/aristath/aqicast/internal/modules/readings"
)

// InitializeRepositories creates all repositories on the container database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	conn := container.DB.Conn()

	container.ReadingRepo = readings.NewRepository(conn, log)
	container.ModelRepo = prediction.NewModelRepository(conn, log)
	container.PredictionRepo = prediction.NewPredictionRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
