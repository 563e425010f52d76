package subscription

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamo   = "ddb"
)

// Options selects and configures a store backend.
type Options struct {
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	DatabaseURL string

	DDBTable    string
	DDBEndpoint string
	AWSRegion   string
}

// Open constructs the store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil

	case BackendRedis:
		cli := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := cli.Ping(ctx).Err(); err != nil {
			cli.Close()
			return nil, fmt.Errorf("ping redis %s: %w", opts.RedisAddr, err)
		}
		return NewRedisStore(cli, opts.RedisKey), nil

	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database URL")
		}
		return OpenPostgres(ctx, opts.DatabaseURL)

	case BackendDynamo:
		cli, err := dynamoClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		table := opts.DDBTable
		if table == "" {
			table = "doorbell_subscriptions"
		}
		return NewDynamoStore(ctx, table, cli), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

func dynamoClient(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.AWSRegion != "" {
			o.Region = opts.AWSRegion
		}
		if opts.DDBEndpoint != "" {
			// Local DynamoDB for development.
			o.BaseEndpoint = aws.String(opts.DDBEndpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("local", "local", "")
		}
	}), nil
}
