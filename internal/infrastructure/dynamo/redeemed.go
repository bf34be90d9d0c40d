package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RedeemedTokenRepo records assertion token IDs that have been exchanged for
// a session. The conditional put makes each assertion single-use: the second
// redemption of the same jti fails. Items carry the assertion's own expiry
// as a DynamoDB TTL, so the table stays small.
type RedeemedTokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewRedeemedTokenRepo(client *dynamodb.Client, tableName string) *RedeemedTokenRepo {
	return &RedeemedTokenRepo{client: client, tableName: tableName}
}

// MarkRedeemed claims the token ID. Returns ErrAlreadyUsed if another
// redemption got there first.
func (r *RedeemedTokenRepo) MarkRedeemed(ctx context.Context, tokenID string, expiresAt int64) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"token_id":   &types.AttributeValueMemberS{Value: tokenID},
			"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(token_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("assertion already redeemed: %w", domain.ErrAlreadyUsed)
	}
	return err
}
