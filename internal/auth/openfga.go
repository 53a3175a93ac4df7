package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/approval-chain/internal/cache"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// RelationChecker 关系检查接口,relation 类型的审批规则通过它判定资格
type RelationChecker interface {
	CheckRelation(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// FreshRelationChecker 可绕过缓存的关系检查,审批决定与管理操作使用
type FreshRelationChecker interface {
	CheckRelationFresh(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// OpenFGAClient OpenFGA 客户端
type OpenFGAClient struct {
	client  *client.OpenFgaClient
	storeID string
	modelID string
}

// NewOpenFGAClient 创建 OpenFGA 客户端
func NewOpenFGAClient(apiURL string, storeID string, modelID string) (*OpenFGAClient, error) {
	configuration := client.ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
		Credentials: &credentials.Credentials{
			Method: credentials.CredentialsMethodNone,
		},
	}

	fgaClient, err := client.NewSdkClient(&configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}

	return &OpenFGAClient{
		client:  fgaClient,
		storeID: storeID,
		modelID: modelID,
	}, nil
}

// CheckRelation 检查 user 与 objectType:objectID 之间是否存在 relation
func (c *OpenFGAClient) CheckRelation(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	body := client.ClientCheckRequest{
		User:     fmt.Sprintf("user:%s", userID),
		Relation: relation,
		Object:   fmt.Sprintf("%s:%s", objectType, objectID),
	}

	response, err := c.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check relation: %w", err)
	}

	return response.GetAllowed(), nil
}

// CheckHealth 检查 OpenFGA 连接健康状态
func (c *OpenFGAClient) CheckHealth(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("openfga client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.ReadAuthorizationModels(ctx).Execute()
	return err
}

// CachedRelationChecker 带缓存的关系检查
// 缓存只服务于待审批列表与通知收件人,决定时走 CheckRelationFresh
type CachedRelationChecker struct {
	checker RelationChecker
	cache   cache.Cache
	ttl     time.Duration
}

// NewCachedRelationChecker 创建带缓存的关系检查
func NewCachedRelationChecker(checker RelationChecker, c cache.Cache, ttl time.Duration) *CachedRelationChecker {
	return &CachedRelationChecker{checker: checker, cache: c, ttl: ttl}
}

func relationKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("fga:user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// CheckRelation 检查关系(带缓存)
func (c *CachedRelationChecker) CheckRelation(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	cacheKey := relationKey(userID, relation, objectType, objectID)

	var allowed bool
	if found, err := c.cache.Get(ctx, cacheKey, &allowed); err == nil && found {
		return allowed, nil
	}

	allowed, err := c.checker.CheckRelation(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}

	_ = c.cache.Set(ctx, cacheKey, allowed, c.ttl)
	return allowed, nil
}

// CheckRelationFresh 直接查询 OpenFGA 并刷新缓存
func (c *CachedRelationChecker) CheckRelationFresh(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	allowed, err := c.checker.CheckRelation(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}
	_ = c.cache.Set(ctx, relationKey(userID, relation, objectType, objectID), allowed, c.ttl)
	return allowed, nil
}
