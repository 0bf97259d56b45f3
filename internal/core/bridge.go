package core

import (
	"fmt"

	"nhpbrowser/pkg/domain"

	"github.com/tidwall/gjson"
)

// Bridge 将 Binding 的字符串接口转换为 Core，并把内核 panic 转换为错误
type Bridge struct {
	b Binding
}

var _ Core = (*Bridge)(nil)

// NewBridge 创建内核桥接
func NewBridge(b Binding) *Bridge {
	if b == nil {
		b = Linked()
	}
	return &Bridge{b: b}
}

// guard 执行一次内核调用，任何 panic 都转为 ErrCorePanic
func guard[T any](op string, fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %s: %w", domain.ErrCorePanic, op, e)
				return
			}
			err = fmt.Errorf("%w: %s: %v", domain.ErrCorePanic, op, r)
		}
	}()
	return fn()
}

// parseReply 校验内核返回的 JSON
func parseReply(op, raw string) (gjson.Result, error) {
	if !gjson.Valid(raw) {
		return gjson.Result{}, fmt.Errorf("%w: %s: %q", domain.ErrInvalidCoreReply, op, raw)
	}
	return gjson.Parse(raw), nil
}

func (c *Bridge) Init(workDir string, logLevel int, configJSON string) error {
	_, err := guard("init", func() (struct{}, error) {
		return struct{}{}, c.b.InitializeWithConfig(workDir, logLevel, configJSON)
	})
	return err
}

func (c *Bridge) IsProtectedDomain(host string) (bool, error) {
	return guard("isProtectedDomain", func() (bool, error) {
		return c.b.IsNHPDomain(host), nil
	})
}

func (c *Bridge) DeriveResourceID(host string) (string, error) {
	return guard("deriveResourceId", func() (string, error) {
		return c.b.ExtractResourceID(host), nil
	})
}

// Knock 执行敲门，resHost 按文档顺序展开
func (c *Bridge) Knock(resourceID string) (KnockResult, error) {
	return guard("knock", func() (KnockResult, error) {
		doc, err := parseReply("knock", c.b.GetKnockResultJSON(resourceID))
		if err != nil {
			return KnockResult{}, err
		}
		res := KnockResult{
			ErrCode:  doc.Get("errCode").String(),
			ErrMsg:   doc.Get("errMsg").String(),
			OpenTime: int(doc.Get("opnTime").Int()),
		}
		if hosts := doc.Get("resHost"); hosts.IsObject() {
			hosts.ForEach(func(key, value gjson.Result) bool {
				res.ResolvedHosts = append(res.ResolvedHosts, HostEntry{Name: key.String(), Host: value.String()})
				return true
			})
		}
		return res, nil
	})
}

func (c *Bridge) ParseQRPayload(raw string) (QRParseResult, error) {
	return guard("parseQrPayload", func() (QRParseResult, error) {
		doc, err := parseReply("parseQrPayload", c.b.ParseQRCodeData(raw))
		if err != nil {
			return QRParseResult{}, err
		}
		return QRParseResult{
			Success:    doc.Get("success").Bool(),
			ErrMsg:     doc.Get("errMsg").String(),
			Token:      doc.Get("token").String(),
			OTPSeed:    doc.Get("otpSecret").String(),
			ServerURL:  doc.Get("server").String(),
			AppID:      doc.Get("aspId").String(),
			ResourceID: doc.Get("resId").String(),
			SessionID:  doc.Get("sessionId").String(),
		}, nil
	})
}

func (c *Bridge) GenerateTOTP(seed string) (TOTPResult, error) {
	return guard("generateTotp", func() (TOTPResult, error) {
		doc, err := parseReply("generateTotp", c.b.GenerateTOTP(seed))
		if err != nil {
			return TOTPResult{}, err
		}
		return TOTPResult{
			Success: doc.Get("success").Bool(),
			Code:    doc.Get("code").String(),
			ErrMsg:  doc.Get("errMsg").String(),
		}, nil
	})
}

func (c *Bridge) NotifyScan(serverURL, sessionID, appID, resourceID string) (Ack, error) {
	return guard("notifyScan", func() (Ack, error) {
		return ack("notifyScan", c.b.NotifyQRScan(serverURL, sessionID, appID, resourceID))
	})
}

func (c *Bridge) Verify(req VerifyRequest) (Ack, error) {
	return guard("verify", func() (Ack, error) {
		return ack("verify", c.b.VerifyQRAuth(req.ServerURL, req.Token, req.OTPCode, req.DeviceInfo, req.AppID, req.ResourceID))
	})
}

func ack(op, raw string) (Ack, error) {
	doc, err := parseReply(op, raw)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Success: doc.Get("success").Bool(), ErrMsg: doc.Get("errMsg").String()}, nil
}

func (c *Bridge) IsInitialized() bool {
	ok, err := guard("isInitialized", func() (bool, error) {
		return c.b.IsInitialized(), nil
	})
	return err == nil && ok
}

func (c *Bridge) Shutdown() {
	_, _ = guard("shutdown", func() (struct{}, error) {
		c.b.Cleanup()
		return struct{}{}, nil
	})
}
