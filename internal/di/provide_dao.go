package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/savaki/tf-provisioner/internal/services"
)

// ProvideRequestDAO returns nil when no request table is configured; status
// recording is then skipped.
func ProvideRequestDAO(client *dynamodb.Client, config *services.Config) *requestdao.DAO {
	if config.RequestTable == "" {
		return nil
	}
	return requestdao.New(client, config.RequestTable)
}
