package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists entities in MongoDB, one collection per entity, with
// the amount-uniqueness invariant enforced by a partial unique index on
// orders mirroring the Postgres backend's.
type MongoStore struct {
	client *mongo.Client

	merchants    *mongo.Collection
	credentials  *mongo.Collection
	orders       *mongo.Collection
	callbackLogs *mongo.Collection
	balanceLogs  *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures indexes exist.
func NewMongoStore(mongoURL, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("storage: connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("storage: ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:       client,
		merchants:    db.Collection("merchants"),
		credentials:  db.Collection("credentials"),
		orders:       db.Collection("orders"),
		callbackLogs: db.Collection("callback_logs"),
		balanceLogs:  db.Collection("balance_logs"),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.merchants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("storage: create merchants index: %w", err)
	}

	_, err = s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trade_no", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("storage: create orders trade_no index: %w", err)
	}

	_, err = s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "credential_id", Value: 1}, {Key: "money", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.D{{Key: "status", Value: int(OrderPending)}}),
	})
	if err != nil {
		return fmt.Errorf("storage: create orders amount-uniqueness index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoMerchant struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Key       string    `bson:"key"`
	Active    bool      `bson:"active"`
	Money     int64     `bson:"money"`
	CreatedAt time.Time `bson:"created_at"`
}

func toMongoMerchant(m Merchant) mongoMerchant {
	return mongoMerchant{ID: m.ID, Username: m.Username, Key: m.Key, Active: m.Active, Money: m.Money, CreatedAt: m.CreatedAt}
}

func (d mongoMerchant) toMerchant() Merchant {
	return Merchant{ID: d.ID, Username: d.Username, Key: d.Key, Active: d.Active, Money: d.Money, CreatedAt: d.CreatedAt}
}

func (s *MongoStore) CreateMerchant(ctx context.Context, m Merchant) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.merchants.InsertOne(ctx, toMongoMerchant(m))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("storage: username %q already exists", m.Username)
	}
	if err != nil {
		return fmt.Errorf("storage: create merchant: %w", err)
	}
	return nil
}

func (s *MongoStore) GetMerchant(ctx context.Context, id string) (Merchant, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var doc mongoMerchant
	if err := s.merchants.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, fmt.Errorf("storage: get merchant: %w", err)
	}
	return doc.toMerchant(), nil
}

func (s *MongoStore) GetMerchantByUsername(ctx context.Context, username string) (Merchant, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var doc mongoMerchant
	if err := s.merchants.FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, fmt.Errorf("storage: get merchant by username: %w", err)
	}
	return doc.toMerchant(), nil
}

func (s *MongoStore) SetMerchantActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.merchants.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"active": active}})
	return checkMongoMatched(res, err)
}

func (s *MongoStore) CreditMerchant(ctx context.Context, id string, amount int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.merchants.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"money": amount}})
	return checkMongoMatched(res, err)
}

type mongoCredential struct {
	ID                  string    `bson:"_id"`
	MerchantID          string    `bson:"merchant_id"`
	QRCodeURL           string    `bson:"qrcode_url"`
	AppID               string    `bson:"app_id"`
	PublicKeyEncrypted  string    `bson:"public_key_encrypted"`
	PrivateKeyEncrypted string    `bson:"private_key_encrypted"`
	Active              bool      `bson:"active"`
	CreatedAt           time.Time `bson:"created_at"`
}

func toMongoCredential(c Credential) mongoCredential {
	return mongoCredential{
		ID: c.ID, MerchantID: c.MerchantID, QRCodeURL: c.QRCodeURL, AppID: c.AppID,
		PublicKeyEncrypted: c.PublicKeyEncrypted, PrivateKeyEncrypted: c.PrivateKeyEncrypted,
		Active: c.Active, CreatedAt: c.CreatedAt,
	}
}

func (d mongoCredential) toCredential() Credential {
	return Credential{
		ID: d.ID, MerchantID: d.MerchantID, QRCodeURL: d.QRCodeURL, AppID: d.AppID,
		PublicKeyEncrypted: d.PublicKeyEncrypted, PrivateKeyEncrypted: d.PrivateKeyEncrypted,
		Active: d.Active, CreatedAt: d.CreatedAt,
	}
}

func (s *MongoStore) CreateCredential(ctx context.Context, c Credential) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.credentials.InsertOne(ctx, toMongoCredential(c))
	if err != nil {
		return fmt.Errorf("storage: create credential: %w", err)
	}
	return nil
}

func (s *MongoStore) GetCredential(ctx context.Context, id string) (Credential, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var doc mongoCredential
	if err := s.credentials.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("storage: get credential: %w", err)
	}
	return doc.toCredential(), nil
}

func (s *MongoStore) ListCredentialsByMerchant(ctx context.Context, merchantID string) ([]Credential, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	cur, err := s.credentials.Find(ctx, bson.M{"merchant_id": merchantID})
	if err != nil {
		return nil, fmt.Errorf("storage: list credentials: %w", err)
	}
	defer cur.Close(ctx)

	var out []Credential
	for cur.Next(ctx) {
		var doc mongoCredential
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("storage: decode credential: %w", err)
		}
		out = append(out, doc.toCredential())
	}
	return out, cur.Err()
}

func (s *MongoStore) SetCredentialActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.credentials.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"active": active}})
	return checkMongoMatched(res, err)
}

type mongoOrder struct {
	ID               string     `bson:"_id"`
	TradeNo          string     `bson:"trade_no"`
	OutTradeNo       string     `bson:"out_trade_no"`
	MerchantID       string     `bson:"merchant_id"`
	CredentialID     string     `bson:"credential_id"`
	Type             string     `bson:"type"`
	Name             string     `bson:"name"`
	OriginalMoney    int64      `bson:"original_money"`
	Money            int64      `bson:"money"`
	AdjustAmount     int64      `bson:"adjust_amount"`
	Status           int        `bson:"status"`
	BaseBalance      int64      `bson:"base_balance"`
	ConfirmBalance   int64      `bson:"confirm_balance"`
	NotifyURL        string     `bson:"notify_url"`
	ReturnURL        string     `bson:"return_url"`
	Param            string     `bson:"param"`
	PaidAt           *time.Time `bson:"paid_at"`
	ExpiredAt        *time.Time `bson:"expired_at"`
	CreatedAt        time.Time  `bson:"created_at"`
	CallbackStatus   int        `bson:"callback_status"`
	CallbackAttempts int        `bson:"callback_attempts"`
}

func toMongoOrder(o Order) mongoOrder {
	return mongoOrder{
		ID: o.ID, TradeNo: o.TradeNo, OutTradeNo: o.OutTradeNo, MerchantID: o.MerchantID, CredentialID: o.CredentialID,
		Type: o.Type, Name: o.Name,
		OriginalMoney: o.OriginalMoney, Money: o.Money, AdjustAmount: o.AdjustAmount, Status: int(o.Status),
		BaseBalance: o.BaseBalance, ConfirmBalance: o.ConfirmBalance, NotifyURL: o.NotifyURL, ReturnURL: o.ReturnURL,
		Param: o.Param, PaidAt: o.PaidAt, ExpiredAt: o.ExpiredAt, CreatedAt: o.CreatedAt,
		CallbackStatus: int(o.CallbackStatus), CallbackAttempts: o.CallbackAttempts,
	}
}

func (d mongoOrder) toOrder() Order {
	return Order{
		ID: d.ID, TradeNo: d.TradeNo, OutTradeNo: d.OutTradeNo, MerchantID: d.MerchantID, CredentialID: d.CredentialID,
		Type: d.Type, Name: d.Name,
		OriginalMoney: d.OriginalMoney, Money: d.Money, AdjustAmount: d.AdjustAmount, Status: OrderStatus(d.Status),
		BaseBalance: d.BaseBalance, ConfirmBalance: d.ConfirmBalance, NotifyURL: d.NotifyURL, ReturnURL: d.ReturnURL,
		Param: d.Param, PaidAt: d.PaidAt, ExpiredAt: d.ExpiredAt, CreatedAt: d.CreatedAt,
		CallbackStatus: CallbackStatus(d.CallbackStatus), CallbackAttempts: d.CallbackAttempts,
	}
}

func (s *MongoStore) CreateOrder(ctx context.Context, o Order) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.orders.InsertOne(ctx, toMongoOrder(o))
	if mongo.IsDuplicateKeyError(err) {
		return ErrAmountConflict
	}
	if err != nil {
		return fmt.Errorf("storage: create order: %w", err)
	}
	return nil
}

func (s *MongoStore) GetOrderByTradeNo(ctx context.Context, tradeNo string) (Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var doc mongoOrder
	if err := s.orders.FindOne(ctx, bson.M{"trade_no": tradeNo}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("storage: get order: %w", err)
	}
	return doc.toOrder(), nil
}

func (s *MongoStore) GetOrderByOutTradeNo(ctx context.Context, merchantID, outTradeNo string) (Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var doc mongoOrder
	if err := s.orders.FindOne(ctx, bson.M{"merchant_id": merchantID, "out_trade_no": outTradeNo}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("storage: get order by out_trade_no: %w", err)
	}
	return doc.toOrder(), nil
}

func (s *MongoStore) CountOrdersByMerchant(ctx context.Context, merchantID string, since time.Time) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	filter := bson.M{"merchant_id": merchantID}
	if !since.IsZero() {
		filter["created_at"] = bson.M{"$gte": since}
	}
	count, err := s.orders.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("storage: count orders by merchant: %w", err)
	}
	return int(count), nil
}

func (s *MongoStore) ListPendingOrdersByCredential(ctx context.Context, credentialID string) ([]Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.orders.Find(ctx, bson.M{"credential_id": credentialID, "status": int(OrderPending)}, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending orders: %w", err)
	}
	defer cur.Close(ctx)

	var out []Order
	for cur.Next(ctx) {
		var doc mongoOrder
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("storage: decode order: %w", err)
		}
		out = append(out, doc.toOrder())
	}
	return out, cur.Err()
}

func (s *MongoStore) MarkOrdersPaid(ctx context.Context, tradeNos []string, confirmBalance int64, paidAt time.Time) error {
	if len(tradeNos) == 0 {
		return nil
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("storage: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		for _, tn := range tradeNos {
			var doc mongoOrder
			if err := s.orders.FindOne(sessCtx, bson.M{"trade_no": tn}).Decode(&doc); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return nil, fmt.Errorf("storage: order %q not found", tn)
				}
				return nil, fmt.Errorf("storage: find order %q: %w", tn, err)
			}
			if OrderStatus(doc.Status) != OrderPending {
				return nil, fmt.Errorf("storage: order %q is not pending", tn)
			}

			if _, err := s.orders.UpdateOne(sessCtx, bson.M{"trade_no": tn}, bson.M{"$set": bson.M{
				"status": int(OrderPaid), "confirm_balance": confirmBalance, "paid_at": paidAt,
			}}); err != nil {
				return nil, fmt.Errorf("storage: mark order %q paid: %w", tn, err)
			}
			if _, err := s.merchants.UpdateOne(sessCtx, bson.M{"_id": doc.MerchantID}, bson.M{"$inc": bson.M{"money": doc.Money}}); err != nil {
				return nil, fmt.Errorf("storage: credit merchant for order %q: %w", tn, err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	cur, err := s.orders.Find(ctx, bson.M{"status": int(OrderPending), "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return nil, fmt.Errorf("storage: find expirable orders: %w", err)
	}
	var tradeNos []string
	for cur.Next(ctx) {
		var doc mongoOrder
		if err := cur.Decode(&doc); err != nil {
			cur.Close(ctx)
			return nil, fmt.Errorf("storage: decode order: %w", err)
		}
		tradeNos = append(tradeNos, doc.TradeNo)
	}
	cur.Close(ctx)
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(tradeNos) == 0 {
		return nil, nil
	}

	now := time.Now()
	_, err = s.orders.UpdateMany(ctx,
		bson.M{"trade_no": bson.M{"$in": tradeNos}},
		bson.M{"$set": bson.M{"status": int(OrderExpired), "expired_at": now}},
	)
	if err != nil {
		return nil, fmt.Errorf("storage: expire pending orders: %w", err)
	}
	return tradeNos, nil
}

func (s *MongoStore) RebaseCredentialBalance(ctx context.Context, credentialID string, newBaseBalance int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.orders.UpdateMany(ctx,
		bson.M{"credential_id": credentialID, "status": int(OrderPending)},
		bson.M{"$set": bson.M{"base_balance": newBaseBalance}},
	)
	if err != nil {
		return fmt.Errorf("storage: rebase credential balance: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateCallbackStatus(ctx context.Context, tradeNo string, status CallbackStatus, attempts int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.orders.UpdateOne(ctx, bson.M{"trade_no": tradeNo}, bson.M{"$set": bson.M{
		"callback_status": int(status), "callback_attempts": attempts,
	}})
	return checkMongoMatched(res, err)
}

func (s *MongoStore) ListOrdersForCallbackRetry(ctx context.Context, maxAttempts int) ([]Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.orders.Find(ctx, bson.M{
		"status":            int(OrderPaid),
		"callback_status":   bson.M{"$in": []int{int(CallbackFailed), int(CallbackInFlight)}},
		"callback_attempts": bson.M{"$lt": maxAttempts},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: list orders for callback retry: %w", err)
	}
	defer cur.Close(ctx)

	var out []Order
	for cur.Next(ctx) {
		var doc mongoOrder
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("storage: decode order: %w", err)
		}
		out = append(out, doc.toOrder())
	}
	return out, cur.Err()
}

type mongoCallbackLog struct {
	ID           string    `bson:"_id"`
	OrderID      string    `bson:"order_id"`
	Attempt      int       `bson:"attempt"`
	URL          string    `bson:"url"`
	HTTPStatus   int       `bson:"http_status"`
	ResponseBody string    `bson:"response_body"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (s *MongoStore) AppendCallbackLog(ctx context.Context, log CallbackLog) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.callbackLogs.InsertOne(ctx, mongoCallbackLog{
		ID: log.ID, OrderID: log.OrderID, Attempt: log.Attempt, URL: log.URL,
		HTTPStatus: log.HTTPStatus, ResponseBody: log.ResponseBody, CreatedAt: log.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("storage: append callback log: %w", err)
	}
	return nil
}

func (s *MongoStore) ListCallbackLogsByOrder(ctx context.Context, orderID string) ([]CallbackLog, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "attempt", Value: 1}})
	cur, err := s.callbackLogs.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: list callback logs: %w", err)
	}
	defer cur.Close(ctx)

	var out []CallbackLog
	for cur.Next(ctx) {
		var doc mongoCallbackLog
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("storage: decode callback log: %w", err)
		}
		out = append(out, CallbackLog{
			ID: doc.ID, OrderID: doc.OrderID, Attempt: doc.Attempt, URL: doc.URL,
			HTTPStatus: doc.HTTPStatus, ResponseBody: doc.ResponseBody, CreatedAt: doc.CreatedAt,
		})
	}
	return out, cur.Err()
}

type mongoBalanceLog struct {
	ID              string    `bson:"_id"`
	CredentialID    string    `bson:"credential_id"`
	AvailableAmount int64     `bson:"available_amount"`
	MatchResult     string    `bson:"match_result"`
	MatchedTradeNos []string  `bson:"matched_trade_nos"`
	CreatedAt       time.Time `bson:"created_at"`
}

func (s *MongoStore) AppendBalanceLog(ctx context.Context, log BalanceLog) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.balanceLogs.InsertOne(ctx, mongoBalanceLog{
		ID: log.ID, CredentialID: log.CredentialID, AvailableAmount: log.AvailableAmount,
		MatchResult: log.MatchResult, MatchedTradeNos: log.MatchedTradeNos, CreatedAt: log.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("storage: append balance log: %w", err)
	}
	return nil
}

func checkMongoMatched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return fmt.Errorf("storage: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
