package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OtpRepo manages the pending one-time codes.
// PK: email (normalized). A PutItem fully replaces any prior item for the
// same email, which is exactly the single-live-code-per-identifier rule.
// State transitions on an existing item go through conditional updates so
// that concurrent verify calls stay linearizable per email.
type OtpRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOtpRepo(client *dynamodb.Client, tableName string) *OtpRepo {
	return &OtpRepo{client: client, tableName: tableName}
}

// Put writes a fresh record, superseding any previous one for the email.
func (r *OtpRepo) Put(ctx context.Context, rec *domain.OtpRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OtpRepo) Get(ctx context.Context, email string) (*domain.OtpRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("email", email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var rec domain.OtpRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *OtpRepo) Delete(ctx context.Context, email string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("email", email),
	})
	return err
}

// MarkVerified flips the record to its terminal verified state. The
// condition pins the record against the attempts value the caller observed,
// so a concurrent verify (either a second success or a racing failed
// attempt) loses the race. The old item returned on condition failure tells
// the two apart: a record already verified is a double-consume
// (ErrAlreadyUsed), a still-pending record whose attempts moved is a
// retryable state change (ErrFailedPrecondition).
func (r *OtpRepo) MarkVerified(ctx context.Context, email string, observedAttempts int, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("email", email),
		UpdateExpression:    aws.String("SET #v = :true, #va = :at"),
		ConditionExpression: aws.String("attribute_exists(email) AND #v = :false AND #a = :observed"),
		ExpressionAttributeNames: map[string]string{
			"#v":  fieldVerified,
			"#va": fieldVerifiedAt,
			"#a":  fieldAttempts,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":     &types.AttributeValueMemberBOOL{Value: true},
			":false":    &types.AttributeValueMemberBOOL{Value: false},
			":at":       &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
			":observed": &types.AttributeValueMemberN{Value: strconv.Itoa(observedAttempts)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if v, ok := ccf.Item[fieldVerified].(*types.AttributeValueMemberBOOL); ok && !v.Value {
			return fmt.Errorf("otp state changed during verification, retry: %w", domain.ErrFailedPrecondition)
		}
		return fmt.Errorf("otp already consumed: %w", domain.ErrAlreadyUsed)
	}
	return err
}

// RecordFailedAttempt increments the attempt counter and stamps the attempt
// time. Returns the new attempts count. The record must still be pending;
// a record verified in between surfaces as ErrAlreadyUsed.
func (r *OtpRepo) RecordFailedAttempt(ctx context.Context, email string, at time.Time) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("email", email),
		UpdateExpression:    aws.String("ADD #a :one SET #la = :at"),
		ConditionExpression: aws.String("attribute_exists(email) AND #v = :false"),
		ExpressionAttributeNames: map[string]string{
			"#a":  fieldAttempts,
			"#la": fieldLastAttempt,
			"#v":  fieldVerified,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":at":    &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("otp already consumed: %w", domain.ErrAlreadyUsed)
	}
	if err != nil {
		return 0, err
	}
	if n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN); ok {
		attempts, convErr := strconv.Atoi(n.Value)
		if convErr == nil {
			return attempts, nil
		}
	}
	return 0, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
