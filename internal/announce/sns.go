// Package announce publishes ring events to an SNS topic.
package announce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/logic"
)

// Publisher is the slice of the SNS API used here.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Event is the announcement body.
type Event struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Device    string `json:"device"`
}

// Announcer publishes one message per press.
type Announcer struct {
	cli     Publisher
	arn     string
	device  string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAnnouncer creates an announcer for topicARN.
func NewAnnouncer(cli Publisher, topicARN, device string) *Announcer {
	return &Announcer{cli: cli, arn: topicARN, device: device, timeout: 5 * time.Second}
}

// NewClient builds an SNS client. A non-empty endpoint points it at a local
// emulator with static test credentials.
func NewClient(ctx context.Context, endpoint string) (*sns.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	}), nil
}

// Announce publishes t.
func (a *Announcer) Announce(ctx context.Context, t logic.Transition) error {
	body, err := json.Marshal(Event{
		Event:     "RING",
		Timestamp: t.Time.UTC().Format(time.RFC3339),
		Source:    string(t.Source),
		Device:    a.device,
	})
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.arn),
		Message:  aws.String(string(body)),
		Subject:  aws.String("Doorbell"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
			"source":       {DataType: aws.String("String"), StringValue: aws.String(string(t.Source))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.arn, err)
	}
	log.WithField("message_id", aws.ToString(out.MessageId)).Debug("announce: ring published")
	return nil
}

// Task returns a registry task announcing every transition matching dir.
// Each announcement is published in the background; failures are logged.
func (a *Announcer) Task(ctx context.Context, dir logic.Direction) logic.Task {
	return logic.Task{
		Name:      "sns",
		Direction: dir,
		Run: func(t logic.Transition) error {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				if err := a.Announce(ctx, t); err != nil {
					log.WithError(err).Warn("announce: ring not published")
				}
			}()
			return nil
		},
	}
}

// Wait blocks until every announcement started by Task has finished.
func (a *Announcer) Wait() {
	a.wg.Wait()
}
