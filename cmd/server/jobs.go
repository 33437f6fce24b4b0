package main

import (
	"context"

	"github.com/sirupsen/logrus"
)

// The quota and score recompute jobs run in separate services. These
// adapters stand in for them in a single-binary deployment: they log the
// affected ids so the cascade and relay paths stay fully exercised.

type logQuotaRecalculator struct {
	log *logrus.Logger
}

func (l *logQuotaRecalculator) RecalculateUsers(_ context.Context, companyID string, userIDs []string) error {
	l.log.WithFields(logrus.Fields{"company": companyID, "users": userIDs}).Info("would recalculate task quotas for users")
	return nil
}

func (l *logQuotaRecalculator) RecalculateSubDepartments(_ context.Context, companyID string, sdIDs []string) error {
	l.log.WithFields(logrus.Fields{"company": companyID, "sds": sdIDs}).Info("would recalculate task quotas for sub-departments")
	return nil
}

type logScoreResetter struct {
	log *logrus.Logger
}

func (l *logScoreResetter) ResetUsers(_ context.Context, companyID string, userIDs []string) error {
	l.log.WithFields(logrus.Fields{"company": companyID, "users": userIDs}).Info("would reset lead scores for users")
	return nil
}

func (l *logScoreResetter) ResetSubDepartments(_ context.Context, companyID string, sdIDs []string) error {
	l.log.WithFields(logrus.Fields{"company": companyID, "sds": sdIDs}).Info("would reset lead scores for sub-departments")
	return nil
}
