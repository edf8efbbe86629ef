package repository

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/database/dbtest"
)

func TestPostgresStoreContract(t *testing.T) {
	db, _ := dbtest.StartPostgres(t, true)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runStoreContract(t, NewPostgresStore(db.Pool, logger))
}
